package session

import (
	"bytes"
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any byte content, writing it to a remote path and reading it back
// through the terminal channel yields the identical bytes, including
// non-UTF8 sequences and shell metacharacters.
func TestTransferRoundTripProperty(t *testing.T) {
	f := newFakeMux()
	m := testManager(t, f)
	ctx := context.Background()
	sess := mustOpen(t, m, "h1")

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("write then read returns identical bytes", prop.ForAll(
		func(content []byte) bool {
			if err := m.WriteRemoteFile(ctx, sess.ID, "/tmp/prop", content, false); err != nil {
				return false
			}
			got, err := m.ReadRemoteFile(ctx, sess.ID, "/tmp/prop")
			if err != nil {
				return false
			}
			return bytes.Equal(got, content)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("append concatenates in order", prop.ForAll(
		func(a, b []byte) bool {
			if err := m.WriteRemoteFile(ctx, sess.ID, "/tmp/prop-append", a, false); err != nil {
				return false
			}
			if err := m.WriteRemoteFile(ctx, sess.ID, "/tmp/prop-append", b, true); err != nil {
				return false
			}
			got, err := m.ReadRemoteFile(ctx, sess.ID, "/tmp/prop-append")
			if err != nil {
				return false
			}
			return bytes.Equal(got, append(append([]byte{}, a...), b...))
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
