package diag

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDiagnostic_UnwrapsToSentinel(t *testing.T) {
	d := Diagnostic{Kind: KindMissingSource, Group: "G1", Message: "no overview.tsv"}
	assert.True(t, errors.Is(d, ErrMissingSource))
	assert.False(t, errors.Is(d, ErrMalformedRecord))
	assert.Contains(t, d.Error(), "G1")

	d = Diagnostic{Kind: KindMalformedRecord, File: "a.tsv", Line: 4, Message: "short"}
	assert.Equal(t, "malformed_record: a.tsv:4: short", d.Error())
}

func TestFromError(t *testing.T) {
	d := FromError(fmt.Errorf("wrapped: %w", ErrNonNumericValue))
	assert.Equal(t, KindNonNumericValue, d.Kind)

	d = FromError(errors.New("something else"))
	assert.Equal(t, KindMalformedRecord, d.Kind)

	orig := Diagnostic{Kind: KindMissingSource, Group: "G2"}
	d = FromError(fmt.Errorf("ctx: %w", orig))
	assert.Equal(t, orig, d)
}

func TestCollector_ConcurrentAddAndLog(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c := NewCollector(zap.New(core))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add(Diagnostic{Kind: KindMalformedRecord, File: "f.tsv", Line: i + 1})
		}(i)
	}
	wg.Wait()

	require.Equal(t, 20, c.Len())
	assert.Equal(t, 20, logs.Len())
	items := c.Items()
	for i := 1; i < len(items); i++ {
		assert.Less(t, items[i-1].Line, items[i].Line)
	}
	assert.Equal(t, map[Kind]int{KindMalformedRecord: 20}, c.Counts())
}

func TestNumber(t *testing.T) {
	v, err := Number(" 412 ")
	require.NoError(t, err)
	assert.Equal(t, 412.0, v)

	v, err = Number("1e-5")
	require.NoError(t, err)
	assert.InDelta(t, 0.00001, v, 1e-12)

	for _, raw := range []string{"", "-", "NA", "twelve"} {
		v, err = Number(raw)
		assert.ErrorIs(t, err, ErrNonNumericValue, raw)
		assert.Zero(t, v)
	}
}
