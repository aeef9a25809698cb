package ingest

import (
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"gagyebu/internal/core"
)

// issuers are card companies and banks whose names show up in statement file
// names and sheet titles. Longer names are tried first so "KB국민카드" wins
// over "국민카드".
var issuers = []string{
	"삼성카드", "현대카드", "신한카드", "KB국민카드", "국민카드", "롯데카드", "하나카드",
	"우리카드", "BC카드", "비씨카드", "NH농협카드", "농협카드", "씨티카드",
	"신한은행", "KB국민은행", "국민은행", "우리은행", "하나은행", "NH농협은행", "농협은행",
	"IBK기업은행", "기업은행", "SC제일은행", "카카오뱅크", "토스뱅크", "케이뱅크",
}

// romanized file-name aliases seen in exports from issuer web sites
var issuerAliases = map[string]string{
	"samsungcard": "삼성카드",
	"hyundaicard": "현대카드",
	"shinhancard": "신한카드",
	"kbcard":      "KB국민카드",
	"lottecard":   "롯데카드",
	"hanacard":    "하나카드",
	"wooricard":   "우리카드",
	"kakaobank":   "카카오뱅크",
	"tossbank":    "토스뱅크",
}

func init() {
	sort.SliceStable(issuers, func(i, j int) bool {
		return len(issuers[i]) > len(issuers[j])
	})
}

// IssuerFromText finds the first known issuer named in s.
func IssuerFromText(s string) string {
	s = norm.NFC.String(s)
	upper := strings.ToUpper(s)
	for _, name := range issuers {
		if strings.Contains(upper, strings.ToUpper(name)) {
			return name
		}
	}
	compact := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s))
	aliases := make([]string, 0, len(issuerAliases))
	for alias := range issuerAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if strings.Contains(compact, alias) {
			return issuerAliases[alias]
		}
	}
	return ""
}

// ResolveAccountName picks the target account: an explicit name, else an
// issuer named by the file, else a value from the account column or any
// header/cell of the statement, else the default account.
func ResolveAccountName(explicit, filename string, headers []string, txs []core.NormalizedTransaction) string {
	if name := strings.TrimSpace(explicit); name != "" {
		return norm.NFC.String(name)
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if name := IssuerFromText(base); name != "" {
		return name
	}
	for _, tx := range txs {
		if tx.Account == "" {
			continue
		}
		if name := IssuerFromText(tx.Account); name != "" {
			return name
		}
	}
	if name := IssuerFromText(strings.Join(headers, " ")); name != "" {
		return name
	}
	const scanRows = 20
	for i, tx := range txs {
		if i >= scanRows {
			break
		}
		if name := IssuerFromText(strings.Join(tx.Original, " ")); name != "" {
			return name
		}
	}
	return core.DefaultAccountName
}
