package resolve

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericSuffix_Refines(t *testing.T) {
	rel := NumericSuffix{}
	cases := []struct {
		child, parent string
		want          bool
	}{
		{"AA1_3", "AA1", true},
		{"AA1_3_2", "AA1", true},
		{"AA1_3_2", "AA1_3", true},
		{"GH13", "GH1", false},
		{"AA1", "AA1", false},
		{"AA1_", "AA1", false},
		{"AA1_a", "AA1", false},
		{"AA1_3x", "AA1", false},
		{"CBM13", "GH5", false},
		{"AA1", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rel.Refines(tc.child, tc.parent), "%s refines %s", tc.child, tc.parent)
	}
}

func TestResolve_Examples(t *testing.T) {
	rel := NumericSuffix{}
	assert.Equal(t, []string{"AA1"}, Resolve([]string{"AA1", "AA1"}, rel))
	assert.Equal(t, []string{"AA1_3"}, Resolve([]string{"AA1_3", "AA1"}, rel))
	assert.Equal(t, []string{"AA1_3"}, Resolve([]string{"AA1", "AA1_3", "AA1"}, rel))
	assert.Equal(t, []string{"CBM13", "GH5"}, Resolve([]string{"GH5", "CBM13"}, rel))
	assert.Equal(t, []string{"CBM13", "GH13"}, Resolve([]string{"GH13", "CBM13"}, rel))
	assert.Equal(t, []string{"GH1", "GH13"}, Resolve([]string{"GH13", "GH1"}, rel))
	assert.Equal(t, []string{"AA1_3_2", "GH5_12"}, Resolve([]string{"AA1", "AA1_3", "GH5", "AA1_3_2", "GH5_12"}, rel))
	assert.Empty(t, Resolve(nil, rel))
}

func TestResolve_SiblingsRetained(t *testing.T) {
	got := Resolve([]string{"AA1_3", "AA1_2", "AA1"}, NumericSuffix{})
	assert.Equal(t, []string{"AA1_2", "AA1_3"}, got)
}

func TestResolve_NilRelationOnlyDedupes(t *testing.T) {
	assert.Equal(t, []string{"AA1", "AA1_3"}, Resolve([]string{"AA1_3", "AA1", "AA1"}, nil))
}

func TestResolve_IdempotentAndOrderIndependent(t *testing.T) {
	base := []string{"AA1", "AA1_3", "AA1", "GH5", "GH5_7", "GH13", "GH1", "CBM1", "CBM13", "AA9", "PL1_2_4", "PL1"}
	rel := NumericSuffix{}
	want := Resolve(base, rel)
	assert.Equal(t, want, Resolve(want, rel))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		perm := append([]string(nil), base...)
		rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		got := Resolve(perm, rel)
		require.Equal(t, want, got, "permutation %v", perm)
		require.Equal(t, got, Resolve(got, rel))
	}
}

func TestSuffixPattern(t *testing.T) {
	rel, err := NewSuffixPattern(`_[a-z]+`)
	require.NoError(t, err)
	assert.True(t, rel.Refines("GH5_ab", "GH5"))
	assert.False(t, rel.Refines("GH5_1", "GH5"))
	assert.Equal(t, []string{"GH5_ab"}, Resolve([]string{"GH5", "GH5_ab"}, rel))
	assert.Equal(t, "suffix:_[a-z]+", rel.Name())
	assert.Equal(t, []string{"GH5_a_b"}, Resolve([]string{"GH5", "GH5_a", "GH5_a_b"}, rel))

	letter, err := NewSuffixPattern("[a-z]")
	require.NoError(t, err)
	assert.True(t, letter.Refines("GH5ab", "GH5"))
	for _, labels := range [][]string{
		{"GH5", "GH5a"},
		{"GH5", "GH5a", "GH5ab"},
		{"GH5ab", "GH5", "GH5a"},
		{"GH5", "GH5ab"},
	} {
		got := Resolve(labels, letter)
		assert.Len(t, got, 1, "%v", labels)
		assert.NotEqual(t, "GH5", got[0], "%v", labels)
	}
	assert.Equal(t, []string{"GH13", "GH5ab"}, Resolve([]string{"GH5", "GH5a", "GH5ab", "GH13"}, letter))

	_, err = NewSuffixPattern("(")
	assert.Error(t, err)
}

func TestNearMisses(t *testing.T) {
	pairs := NearMisses([]string{"GH5", "GH5_a", "GH5_2", "GH13", "GH1", "AA1.1", "AA1"}, NumericSuffix{})
	assert.Equal(t, []Pair{
		{Parent: "AA1", Child: "AA1.1"},
		{Parent: "GH5", Child: "GH5_a"},
	}, pairs)
	assert.Nil(t, NearMisses([]string{"GH5", "GH5_a"}, nil))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "AA1_3|CBM1", Key([]string{"AA1_3", "CBM1"}, "|"))
}
