package money

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	unitsM   = []string{"", "один", "два", "три", "четыре", "пять", "шесть", "семь", "восемь", "девять"}
	unitsF   = []string{"", "одна", "две", "три", "четыре", "пять", "шесть", "семь", "восемь", "девять"}
	teens    = []string{"десять", "одиннадцать", "двенадцать", "тринадцать", "четырнадцать", "пятнадцать", "шестнадцать", "семнадцать", "восемнадцать", "девятнадцать"}
	tens     = []string{"", "", "двадцать", "тридцать", "сорок", "пятьдесят", "шестьдесят", "семьдесят", "восемьдесят", "девяносто"}
	hundreds = []string{"", "сто", "двести", "триста", "четыреста", "пятьсот", "шестьсот", "семьсот", "восемьсот", "девятьсот"}
)

type scale struct {
	value          int64
	feminine       bool
	one, few, many string
}

var scales = []scale{
	{1_000_000_000, false, "миллиард", "миллиарда", "миллиардов"},
	{1_000_000, false, "миллион", "миллиона", "миллионов"},
	{1_000, true, "тысяча", "тысячи", "тысяч"},
}

// plural picks the Russian noun form for n: 1, 2-4 or 5+ (11-19 take 5+).
func plural(n int64, one, few, many string) string {
	mod10, mod100 := n%10, n%100
	switch {
	case mod100 >= 11 && mod100 <= 19:
		return many
	case mod10 == 1:
		return one
	case mod10 >= 2 && mod10 <= 4:
		return few
	default:
		return many
	}
}

func tripletWords(n int64, feminine bool) []string {
	var parts []string
	h, t, u := n/100, (n%100)/10, n%10
	if h > 0 {
		parts = append(parts, hundreds[h])
	}
	if t == 1 {
		return append(parts, teens[u])
	}
	if t > 1 {
		parts = append(parts, tens[t])
	}
	if u > 0 {
		if feminine {
			parts = append(parts, unitsF[u])
		} else {
			parts = append(parts, unitsM[u])
		}
	}
	return parts
}

// RublesInWords spells an amount out in Russian with the kopecks as two
// digits, capitalised: 1234.50 → "Одна тысяча двести тридцать четыре рубля
// 50 копеек".
func RublesInWords(k Kopecks) string {
	if k == 0 {
		return "Ноль рублей 00 копеек"
	}
	var parts []string
	if k < 0 {
		parts = append(parts, "минус")
		k = -k
	}
	rub, kop := int64(k)/100, int64(k)%100

	if rub == 0 {
		parts = append(parts, "ноль")
	}
	rest := rub
	for _, s := range scales {
		n := rest / s.value
		rest %= s.value
		if n == 0 {
			continue
		}
		// Amounts of a trillion and more keep the leading digits in the top group.
		if n >= 1000 {
			parts = append(parts, fmt.Sprint(n))
		} else {
			parts = append(parts, tripletWords(n, s.feminine)...)
		}
		parts = append(parts, plural(n, s.one, s.few, s.many))
	}
	if rest > 0 {
		parts = append(parts, tripletWords(rest, false)...)
	}

	parts = append(parts, plural(rub, "рубль", "рубля", "рублей"))
	parts = append(parts, fmt.Sprintf("%02d %s", kop, plural(kop, "копейка", "копейки", "копеек")))
	return capitalize(strings.Join(parts, " "))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
