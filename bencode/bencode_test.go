package bencode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeString(t *testing.T) {
	got := Encode(NewString([]byte("spam")))
	assert.Equal(t, []byte("4:spam"), got)
}

func TestEncodeInt(t *testing.T) {
	assert.Equal(t, []byte("i42e"), Encode(NewInt(42)))
	assert.Equal(t, []byte("i0e"), Encode(NewInt(0)))
	assert.Equal(t, []byte("i-3e"), Encode(NewInt(-3)))
}

func TestEncodeList(t *testing.T) {
	got := Encode(NewList(NewString([]byte("spam")), NewString([]byte("eggs"))))
	assert.Equal(t, []byte("l4:spam4:eggse"), got)
}

func TestEncodeDictSorted(t *testing.T) {
	got := Encode(NewDict(map[string]Value{
		"z": NewString([]byte("last")),
		"a": NewString([]byte("first")),
		"m": NewString([]byte("middle")),
	}))
	assert.Equal(t, []byte("d1:a5:first1:m6:middle1:z4:laste"), got)
}

// S1 from spec.md §8.
func TestRoundTripDict(t *testing.T) {
	input := []byte("d3:cow3:moo4:spam4:eggse")
	v, err := DecodeFull(input)
	require.NoError(t, err)

	dict, err := v.AsDict()
	require.NoError(t, err)
	cow, err := dict["cow"].AsString()
	require.NoError(t, err)
	assert.Equal(t, "moo", string(cow))

	assert.Equal(t, input, Encode(*v))
}

// S2 from spec.md §8.
func TestIntegerGrammar(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr ErrorKind
		isErr   bool
	}{
		{in: "i3e", want: 3},
		{in: "i-3e", want: -3},
		{in: "i0e", want: 0},
		{in: "i03e", isErr: true, wantErr: InvalidInteger},
		{in: "i-0e", isErr: true, wantErr: InvalidInteger},
		{in: "ie", isErr: true, wantErr: InvalidInteger},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			v, err := DecodeFull([]byte(tc.in))
			if tc.isErr {
				require.Error(t, err)
				var benErr *Error
				require.ErrorAs(t, err, &benErr)
				assert.Equal(t, tc.wantErr, benErr.Kind)
				return
			}
			require.NoError(t, err)
			got, err := v.AsInt()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// S3 from spec.md §8.
func TestKeyOrder(t *testing.T) {
	_, err := DecodeFull([]byte("d1:b0:1:a0:ee"))
	require.Error(t, err)
	var benErr *Error
	require.ErrorAs(t, err, &benErr)
	assert.Equal(t, KeyOrder, benErr.Kind)
}

func TestDuplicateKey(t *testing.T) {
	_, err := DecodeFull([]byte("d1:a0:1:a0:ee"))
	require.Error(t, err)
	var benErr *Error
	require.ErrorAs(t, err, &benErr)
	assert.Equal(t, DuplicateKey, benErr.Kind)
}

func TestTrailingData(t *testing.T) {
	_, err := DecodeFull([]byte("i1eextra"))
	require.Error(t, err)
	var benErr *Error
	require.ErrorAs(t, err, &benErr)
	assert.Equal(t, TrailingData, benErr.Kind)
}

func TestUnexpectedEOF(t *testing.T) {
	cases := []string{"d3:cow3:moo", "i42", "4:sp", "l4:spam"}
	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			_, err := DecodeFull([]byte(in))
			require.Error(t, err)
			var benErr *Error
			require.ErrorAs(t, err, &benErr)
			assert.Equal(t, UnexpectedEOF, benErr.Kind)
		})
	}
}

func TestSpanPreservesSubValueBytes(t *testing.T) {
	input := []byte("d4:infod6:lengthi12eee")
	v, err := DecodeFull(input)
	require.NoError(t, err)
	dict, err := v.AsDict()
	require.NoError(t, err)
	info := dict["info"]
	start, end := info.Span()
	assert.Equal(t, "d6:lengthi12ee", string(input[start:end]))
}

// Property: for any value the decoder accepts, re-encoding the decoded
// tree reproduces the original bytes exactly (spec.md §8 invariant 1).
func TestEncodeDecodeRoundTripsExactly(t *testing.T) {
	inputs := [][]byte{
		[]byte("d3:cow3:moo4:spam4:eggse"),
		[]byte("le"),
		[]byte("de"),
		[]byte("i0e"),
		[]byte("i-123456789e"),
		[]byte("l4:spam4:eggsli1ei2ei3eee"),
		[]byte("d1:a5:first1:m6:middle1:z4:laste"),
	}
	for _, in := range inputs {
		v, err := DecodeFull(in)
		require.NoError(t, err)
		assert.Equal(t, in, Encode(*v))
	}
}
