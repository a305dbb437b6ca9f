package handoff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/agent_handoff/internal/mailbox"
)

func TestCheckReadyOrdering(t *testing.T) {
	l := mailbox.DefaultLayout()

	tests := []struct {
		name    string
		respond func(ctx context.Context, s mailbox.Store) error
		wantErr bool
	}{
		{
			name: "payload then marker",
			respond: func(ctx context.Context, s mailbox.Store) error {
				if err := s.WriteAtomic(ctx, l.Payload, []byte("done")); err != nil {
					return err
				}
				return s.WriteAtomic(ctx, l.Marker, nil)
			},
		},
		{
			name: "marker before payload",
			respond: func(ctx context.Context, s mailbox.Store) error {
				if err := s.WriteAtomic(ctx, l.Marker, nil); err != nil {
					return err
				}
				return s.WriteAtomic(ctx, l.Payload, []byte("done"))
			},
			wantErr: true,
		},
		{
			name: "payload rewritten after marker",
			respond: func(ctx context.Context, s mailbox.Store) error {
				if err := s.WriteAtomic(ctx, l.Payload, []byte("draft")); err != nil {
					return err
				}
				if err := s.WriteAtomic(ctx, l.Marker, nil); err != nil {
					return err
				}
				return s.WriteAtomic(ctx, l.Payload, []byte("final"))
			},
			wantErr: true,
		},
		{
			name: "payload deleted before marker",
			respond: func(ctx context.Context, s mailbox.Store) error {
				if err := s.WriteAtomic(ctx, l.Payload, []byte("done")); err != nil {
					return err
				}
				if err := s.Delete(ctx, l.Payload); err != nil {
					return err
				}
				return s.WriteAtomic(ctx, l.Marker, nil)
			},
			wantErr: true,
		},
		{
			name: "never marks",
			respond: func(ctx context.Context, s mailbox.Store) error {
				return s.WriteAtomic(ctx, l.Payload, []byte("done"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mailbox.NewLocalStore(t.TempDir(), 0)
			err := CheckReadyOrdering(context.Background(), store, l, "hello", tt.respond)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfOrder)
				return
			}
			require.NoError(t, err)

			c := newChannel(t, store)
			reply, err := c.Consume(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "done", reply)
		})
	}
}
