package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Allow(t *testing.T) {
	cases := []struct {
		expr string
		req  Request
		want bool
	}{
		{"authenticated", Request{Authenticated: true, UserID: "u1"}, true},
		{"authenticated", Request{}, false},
		{"true", Request{}, true},
		{`method == "GET" || authenticated`, Request{Method: "GET"}, true},
		{`method == "GET" || authenticated`, Request{Method: "POST"}, false},
		{`authenticated && user_id == "admin"`, Request{Authenticated: true, UserID: "bob"}, false},
		{`path.startsWith("/items") && authenticated`, Request{Path: "/items/1/edit", Authenticated: true}, true},
	}
	for _, tc := range cases {
		p, err := New(tc.expr)
		require.NoError(t, err, tc.expr)
		got, err := p.Allow(tc.req)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, "%s with %+v", tc.expr, tc.req)
	}
}

func TestPolicy_RejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "authenticated &&", "unknown_var", `"yes"`, "1 + 1"} {
		_, err := New(expr)
		assert.Error(t, err, expr)
	}
}

func TestPolicy_EvaluationErrorDenies(t *testing.T) {
	p, err := New(`int(user_id) > 0`)
	require.NoError(t, err)

	allowed, err := p.Allow(Request{UserID: "not-a-number"})
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() { MustNew("(") })
	assert.Equal(t, "authenticated", MustNew("authenticated").String())
}
