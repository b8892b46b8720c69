package decentium

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermlink(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    Permlink
		wantErr bool
	}{
		{name: "dashed slug", input: "almstdigital/hello-world", want: Permlink{Author: "almstdigital", Slug: "hello.world"}},
		{name: "dotted slug", input: "almstdigital/hello.world", want: Permlink{Author: "almstdigital", Slug: "hello.world"}},
		{name: "no slash", input: "almstdigital", wantErr: true},
		{name: "empty slug", input: "almstdigital/", wantErr: true},
		{name: "uppercase author", input: "Alice/post", wantErr: true},
		{name: "slug too long", input: "almstdigital/a-very-long-slug-name", wantErr: true},
		{name: "extra segment", input: "almstdigital/hello/world", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePermlink(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPermlinkString(t *testing.T) {
	p := Permlink{Author: "almstdigital", Slug: "hello.world"}
	assert.Equal(t, "almstdigital/hello-world", p.String())

	parsed, err := ParsePermlink(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, parsed)
}

func TestUint64Unmarshal(t *testing.T) {
	cases := []struct {
		input   string
		want    Uint64
		wantErr bool
	}{
		{input: `99487`, want: 99487},
		{input: `"5000000000"`, want: 5000000000},
		{input: `null`, want: 0},
		{input: `"abc"`, wantErr: true},
		{input: `-1`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			var got Uint64
			err := json.Unmarshal([]byte(tc.input), &got)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
