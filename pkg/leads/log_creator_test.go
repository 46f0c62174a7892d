package leads

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCreator(t *testing.T) {
	var buf bytes.Buffer
	c := NewLogCreator(nil, slog.New(slog.NewTextHandler(&buf, nil)))

	id, err := c.CreateLead(context.Background(), ports.LeadRequest{
		SessionID:     "s-1",
		DedupeID:      "C-101",
		ContactMethod: "Whatsapp",
		State:         domain.NewState(map[string]any{"name": "Ana", "email": "ana@example.test"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "s-1:C-101", id)
	assert.Contains(t, buf.String(), "lead captured")
	assert.Contains(t, buf.String(), "email=ana@example.test")

	_, err = c.CreateLead(context.Background(), ports.LeadRequest{SessionID: "s-1", ContactMethod: "fax"})
	assert.ErrorIs(t, err, ErrInvalidContactMethod)
}
