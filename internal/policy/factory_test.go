package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/flowgate/internal/flow"
)

type skipLog struct {
	skips []string
}

func (s *skipLog) RecordSkip(id, reason string) {
	s.skips = append(s.skips, id+":"+reason)
}

func newHeaderFactory(t *testing.T, opts ...FactoryOption) (*Factory, *int) {
	t.Helper()
	calls := new(int)
	r := NewRegistry()
	r.MustRegister(headerPlugin(calls))
	return NewFactory(r, opts...), calls
}

func TestFactory_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		ref             flow.PolicyRef
		wantErr         error
		wantErrContains string
		wantConditional bool
	}{
		{
			name: "plain reference",
			ref:  refFor("header", "value: x"),
		},
		{
			name: "empty configuration",
			ref:  refFor("header", ""),
		},
		{
			name:    "unknown policy",
			ref:     refFor("nope", ""),
			wantErr: ErrUnknownPolicy,
		},
		{
			name:            "malformed configuration",
			ref:             refFor("header", "value: [unterminated"),
			wantErrContains: "invalid configuration",
		},
		{
			name:            "configuration rejected by validator",
			ref:             refFor("header", "value: invalid"),
			wantErrContains: "value must not be invalid",
		},
		{
			name: "conditional reference",
			ref: flow.PolicyRef{
				Policy:    "header",
				Enabled:   true,
				Condition: "request.method == 'GET'",
			},
			wantConditional: true,
		},
		{
			name: "blank condition is not conditional",
			ref: flow.PolicyRef{
				Policy:    "header",
				Enabled:   true,
				Condition: "   ",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, _ := newHeaderFactory(t)
			p, err := f.Create(tt.ref)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				return
			case tt.wantErrContains != "":
				assert.ErrorContains(t, err, tt.wantErrContains)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "header", p.ID())
			_, conditional := p.(*ConditionalPolicy)
			assert.Equal(t, tt.wantConditional, conditional)
		})
	}
}

func TestFactory_CreateUsesDisplayName(t *testing.T) {
	t.Parallel()

	f, _ := newHeaderFactory(t)
	ref := refFor("header", "")
	ref.Name = "Add header"

	p, err := f.Create(ref)
	require.NoError(t, err)
	assert.Equal(t, "Add header", p.Name())
}

func TestFactory_CreateAllDropsDisabled(t *testing.T) {
	t.Parallel()

	skips := &skipLog{}
	f, _ := newHeaderFactory(t, WithSkipRecorder(skips))

	disabled := refFor("header", "")
	disabled.Enabled = false

	policies, err := f.CreateAll([]flow.PolicyRef{
		refFor("header", "value: first"),
		disabled,
		refFor("header", "value: third"),
	})
	require.NoError(t, err)
	assert.Len(t, policies, 2)
	assert.Equal(t, []string{"header:disabled"}, skips.skips)
}

func TestFactory_CreateAllStopsOnError(t *testing.T) {
	t.Parallel()

	f, _ := newHeaderFactory(t)
	_, err := f.CreateAll([]flow.PolicyRef{
		refFor("header", ""),
		refFor("missing", ""),
	})
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestFactory_ConstructorError(t *testing.T) {
	t.Parallel()

	boom := errors.New("cannot build")
	r := NewRegistry()
	r.MustRegister(NewStaticPlugin("broken", "", func() (*passPolicy, error) {
		return nil, boom
	}))

	_, err := NewFactory(r).Create(refFor("broken", ""))
	assert.ErrorIs(t, err, boom)
}
