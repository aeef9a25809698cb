// Package ingest holds the pure steps of statement ingestion: column mapping
// suggestion, row normalization and duplicate detection. Nothing here does
// I/O; callers pass every input explicitly.
package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"gagyebu/internal/core"
)

const (
	scoreSubstring = 1
	scoreToken     = 2
	scoreExact     = 3
)

// synonyms per field, matched against normalized (lowercase, NFC) headers.
var synonyms = map[core.Field][]string{
	core.FieldDate:       {"날짜", "거래일자", "거래일", "사용일자", "승인일시", "승인일자", "이용일자", "이용일", "일자", "date", "transaction date"},
	core.FieldAmount:     {"이용금액", "금액", "승인금액", "청구금액", "결제금액", "거래금액", "amount", "price"},
	core.FieldMerchant:   {"가맹점명", "가맹점", "사용처", "상호", "이용처", "적요", "merchant", "store", "payee"},
	core.FieldType:       {"취소여부", "승인구분", "거래구분", "구분", "type"},
	core.FieldMemo:       {"메모", "비고", "상세", "내용", "note", "memo", "description"},
	core.FieldAccount:    {"카드명", "카드구분", "계좌", "계좌번호", "account", "card"},
	core.FieldWithdrawal: {"출금", "출금액", "찾으신금액", "withdrawal", "debit"},
	core.FieldDeposit:    {"입금", "입금액", "맡기신금액", "deposit", "credit"},
}

// Suggestion is a best-effort mapping proposal. It is never authoritative.
type Suggestion struct {
	Mapping    core.ColumnMapping     `json:"mapping"`
	Confidence map[core.Field]float64 `json:"confidence"`
	Unmapped   []string               `json:"unmapped"`
}

// Suggest assigns each header to the field it matches most strongly. A field
// takes the first header that wants it; later headers that would have picked
// the same field stay unmapped and are not re-scored.
func Suggest(headers []string) Suggestion {
	s := Suggestion{
		Mapping:    core.ColumnMapping{},
		Confidence: map[core.Field]float64{},
	}

	for i, header := range headers {
		field, score := bestField(header)
		if score == 0 {
			s.Unmapped = append(s.Unmapped, header)
			continue
		}
		if _, taken := s.Mapping[field]; taken {
			s.Unmapped = append(s.Unmapped, header)
			continue
		}
		idx := i
		s.Mapping[field] = core.ColumnRef{Header: header, Index: &idx}
		s.Confidence[field] = float64(score) / scoreExact
	}
	return s
}

func bestField(header string) (core.Field, int) {
	h := normalizeLabel(header)
	if h == "" {
		return "", 0
	}
	tokens := tokenize(h)

	var best core.Field
	bestScore := 0
	for _, field := range core.Fields {
		score := 0
		for _, syn := range synonyms[field] {
			if sc := matchScore(h, tokens, syn); sc > score {
				score = sc
			}
		}
		// strict > keeps the earlier field on ties
		if score > bestScore {
			best, bestScore = field, score
		}
	}
	return best, bestScore
}

func matchScore(header string, tokens []string, synonym string) int {
	switch {
	case header == synonym:
		return scoreExact
	case containsToken(tokens, synonym):
		return scoreToken
	case strings.Contains(header, synonym):
		return scoreSubstring
	}
	return 0
}

func containsToken(tokens []string, synonym string) bool {
	for _, tok := range tokens {
		if tok == synonym {
			return true
		}
	}
	// multi-word synonyms like "transaction date"
	if strings.Contains(synonym, " ") {
		return strings.Contains(" "+strings.Join(tokens, " ")+" ", " "+synonym+" ")
	}
	return false
}

// normalizeLabel composes, lowercases and collapses whitespace.
func normalizeLabel(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
