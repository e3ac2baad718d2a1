package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linux-automation/tacd/internal/tacerr"
	"github.com/linux-automation/tacd/internal/topic"
)

func TestRoundTripPutGet(t *testing.T) {
	b := New(nil)
	tp := topic.New[int](nil, "counter")
	RegisterJSON(b, "/v1/test/counter", tp, true, nil)

	require.NoError(t, b.SetExternal("/v1/test/counter", []byte("42")))

	data, ct, err := b.Get("/v1/test/counter")
	require.NoError(t, err)
	require.Equal(t, "application/json", ct)
	require.JSONEq(t, "42", string(data))
}

func TestSetExternalRejectsReadOnly(t *testing.T) {
	b := New(nil)
	tp := topic.New[int](nil, "ro")
	RegisterJSON(b, "/v1/test/ro", tp, false, nil)

	err := b.SetExternal("/v1/test/ro", []byte("1"))
	require.Error(t, err)
	require.Equal(t, tacerr.Forbidden, tacerr.Of(err))
}

func TestSetExternalRejectsBadBody(t *testing.T) {
	b := New(nil)
	tp := topic.New[int](nil, "counter")
	RegisterJSON(b, "/v1/test/counter", tp, true, nil)

	err := b.SetExternal("/v1/test/counter", []byte("not json"))
	require.Error(t, err)
	require.Equal(t, tacerr.BadRequest, tacerr.Of(err))
}

func TestGetUnknownPathIsNotFound(t *testing.T) {
	b := New(nil)
	_, _, err := b.Get("/v1/nope")
	require.Error(t, err)
	require.Equal(t, tacerr.NotFound, tacerr.Of(err))
}

func TestGateBlocksWrite(t *testing.T) {
	b := New(nil)
	tp := topic.New[string](nil, "gated")
	gateErr := tacerr.New(tacerr.Forbidden, "setup mode required")
	RegisterJSON(b, "/v1/test/gated", tp, true, func() error { return gateErr })

	err := b.SetExternal("/v1/test/gated", []byte(`"x"`))
	require.True(t, errors.Is(err, gateErr) || tacerr.Of(err) == tacerr.Forbidden)
}

func TestSubscribeDeliversEncodedPublishes(t *testing.T) {
	b := New(nil)
	tp := topic.New[string](nil, "s")
	RegisterJSON(b, "/v1/test/s", tp, true, nil)

	var got []string
	sub, err := b.Subscribe("/v1/test/s", func(data []byte) {
		got = append(got, string(data))
	})
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, b.SetExternal("/v1/test/s", []byte(`"hello"`)))
	require.Equal(t, []string{`"hello"`}, got)
}

func TestGetBinaryTopic(t *testing.T) {
	b := New(nil)
	tp := topic.New[[]byte](nil, "png")
	RegisterBinary(b, "/v1/test/png", "image/png", tp)

	tp.Publish([]byte{0x89, 'P', 'N', 'G'})

	data, ct, err := b.Get("/v1/test/png")
	require.NoError(t, err)
	require.Equal(t, "image/png", ct)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	b := New(nil)
	tp := topic.New[int](nil, "dup")
	RegisterJSON(b, "/v1/test/dup", tp, true, nil)
	require.Panics(t, func() {
		RegisterJSON(b, "/v1/test/dup", tp, true, nil)
	})
}

func TestRegisterJSONRWGetUsesReaderType(t *testing.T) {
	b := New(nil)
	reader := topic.New[string](nil, "status")
	writer := topic.New[int](nil, "request")
	RegisterJSONRW(b, "/v1/test/rw", reader, writer, nil)

	reader.Publish("on")

	data, ct, err := b.Get("/v1/test/rw")
	require.NoError(t, err)
	require.Equal(t, "application/json", ct)
	require.JSONEq(t, `"on"`, string(data))
}

func TestRegisterJSONRWPutUsesWriterType(t *testing.T) {
	b := New(nil)
	reader := topic.New[string](nil, "status")
	writer := topic.New[int](nil, "request")
	RegisterJSONRW(b, "/v1/test/rw", reader, writer, nil)

	var got int
	sub := writer.Subscribe(func(_, _ uint64, v int) { got = v })
	defer sub.Cancel()

	require.NoError(t, b.SetExternal("/v1/test/rw", []byte("7")))
	require.Equal(t, 7, got)
}

func TestRegisterJSONRWRejectsBadBody(t *testing.T) {
	b := New(nil)
	reader := topic.New[string](nil, "status")
	writer := topic.New[int](nil, "request")
	RegisterJSONRW(b, "/v1/test/rw", reader, writer, nil)

	err := b.SetExternal("/v1/test/rw", []byte("not json"))
	require.Error(t, err)
	require.Equal(t, tacerr.BadRequest, tacerr.Of(err))
}

func TestRegisterJSONRWHonorsGate(t *testing.T) {
	b := New(nil)
	reader := topic.New[string](nil, "status")
	writer := topic.New[int](nil, "request")
	gateErr := tacerr.New(tacerr.Forbidden, "not allowed")
	RegisterJSONRW(b, "/v1/test/rw", reader, writer, func() error { return gateErr })

	err := b.SetExternal("/v1/test/rw", []byte("1"))
	require.Error(t, err)
	require.Equal(t, tacerr.Forbidden, tacerr.Of(err))
}
