package token

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/annotally/internal/diag"
)

func TestTokens_Sentinel(t *testing.T) {
	s := Spec{Delimiters: "|"}
	assert.Empty(t, s.Collect("-"))
	assert.Empty(t, s.Collect(""))
	assert.Empty(t, s.Collect("   "))

	custom := Spec{Delimiters: ",", Sentinels: []string{"NA"}}
	assert.Empty(t, custom.Collect("NA"))
	assert.Equal(t, []string{"-"}, custom.Collect("-"))
}

func TestTokens_SplitPrefixParens(t *testing.T) {
	s := Spec{Delimiters: "|", Prefixes: []string{"CAZy:"}}
	assert.Equal(t, []string{"GH5", "CBM1"}, s.Collect("CAZy:GH5|CAZy:CBM1"))

	goSpec := Spec{Delimiters: "|"}
	assert.Equal(t,
		[]string{"GO:0005975", "GO:0004553"},
		goSpec.Collect("GO:0005975(InterPro)|GO:0004553(PANTHER)"),
	)
}

func TestTokens_PrefixIsExactAndCaseSensitive(t *testing.T) {
	s := Spec{Delimiters: ",", Prefixes: []string{"CAZy:"}}
	assert.Equal(t, []string{"cazy:GH5", "xCAZy:GH6"}, s.Collect("cazy:GH5,xCAZy:GH6"))
}

func TestTokens_MultipleDelimitersAndWhitespace(t *testing.T) {
	s := Spec{Delimiters: ",;"}
	assert.Equal(t, []string{"a", "b", "c"}, s.Collect(" a , b;;c ,"))
}

func TestTokens_StripPattern(t *testing.T) {
	s, err := Spec{Delimiters: "|", StripPattern: `_e\d+`}.Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"GH5", "AA1_3"}, s.Collect("GH5_e23|AA1_3_e1"))

	_, err = Spec{StripPattern: "("}.Compile()
	require.Error(t, err)
}

func TestTokens_NoDelimiterKeepsField(t *testing.T) {
	s := Spec{KeepParens: true}
	assert.Equal(t, []string{"Glycoside hydrolase (family 5)"}, s.Collect(" Glycoside hydrolase (family 5) "))
}

func TestTokens_Fold(t *testing.T) {
	s := Spec{Fold: true}
	assert.Equal(t, []string{"ABC"}, s.Collect("ＡＢＣ"))
}

func TestTokens_LazyStopsEarly(t *testing.T) {
	s := Spec{Delimiters: ","}
	var seen []string
	for tok := range s.Tokens("a,b,c,d") {
		seen = append(seen, tok)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestSplit(t *testing.T) {
	fields, err := Split("p1\tx\tGH5\r\n", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "x", "GH5"}, fields)

	_, err = Split("p1\tx", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrMalformedRecord))
}
