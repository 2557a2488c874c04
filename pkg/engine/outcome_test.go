package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	M = Matched
	N = NotMatched
	U = Unknown
)

func TestAnd_TruthTable(t *testing.T) {
	tests := []struct {
		a, b, want Outcome
	}{
		{M, M, M}, {M, N, N}, {M, U, U},
		{N, M, N}, {N, N, N}, {N, U, N},
		{U, M, U}, {U, N, N}, {U, U, U},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"_"+tt.b.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, And(tt.a, tt.b))
		})
	}
}

func TestOr_TruthTable(t *testing.T) {
	tests := []struct {
		a, b, want Outcome
	}{
		{M, M, M}, {M, N, M}, {M, U, M},
		{N, M, M}, {N, N, N}, {N, U, U},
		{U, M, M}, {U, N, U}, {U, U, U},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"_"+tt.b.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Or(tt.a, tt.b))
		})
	}
}

func TestNot_TruthTable(t *testing.T) {
	assert.Equal(t, N, Not(M))
	assert.Equal(t, M, Not(N))
	assert.Equal(t, U, Not(U))
}

func TestCombinators_OrderIndependentForManyChildren(t *testing.T) {
	assert.Equal(t, N, And(U, M, N, U))
	assert.Equal(t, N, And(N, U, M))
	assert.Equal(t, U, And(M, M, U))
	assert.Equal(t, M, Or(U, N, M))
	assert.Equal(t, M, Or(M, U, N))
	assert.Equal(t, U, Or(N, N, U))
}

func TestVerdictOf(t *testing.T) {
	assert.Equal(t, Match, VerdictOf(M))
	assert.Equal(t, NoMatch, VerdictOf(N))
	assert.Equal(t, Indeterminate, VerdictOf(U))
}

func TestOutcomeAndVerdict_TextEncoding(t *testing.T) {
	data, err := json.Marshal(struct {
		O Outcome `json:"o"`
		V Verdict `json:"v"`
	}{NotMatched, Indeterminate})
	require.NoError(t, err)
	assert.JSONEq(t, `{"o":"not_matched","v":"indeterminate"}`, string(data))

	var o Outcome
	require.NoError(t, o.UnmarshalText([]byte("matched")))
	assert.Equal(t, Matched, o)
	require.Error(t, o.UnmarshalText([]byte("maybe")))

	var v Verdict
	require.NoError(t, v.UnmarshalText([]byte("no_match")))
	assert.Equal(t, NoMatch, v)
	require.Error(t, v.UnmarshalText([]byte("perhaps")))

	_, err = Outcome(9).MarshalText()
	require.Error(t, err)
	assert.Equal(t, "outcome(9)", Outcome(9).String())
	assert.Equal(t, "verdict(7)", Verdict(7).String())
}
