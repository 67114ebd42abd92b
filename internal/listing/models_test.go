package listing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicViewMasksPinDigest(t *testing.T) {
	l := Listing{
		ID:      "l1",
		CarName: "MX-5",
		PinHash: "deadbeef",
	}

	v := l.PublicView()
	assert.True(t, v.HasPin)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "deadbeef")
	assert.Contains(t, string(data), `"hasPin":true`)
}

func TestFieldsApplyTo(t *testing.T) {
	l := Listing{CarName: "MX-5", Price: "1200", Contact: "@a"}

	price := " 999 "
	f := Fields{Price: &price}
	f.ApplyTo(&l)

	assert.Equal(t, "999", l.Price, "supplied field trimmed and applied")
	assert.Equal(t, "MX-5", l.CarName, "nil fields untouched")
	assert.Equal(t, "@a", l.Contact)
}

func TestEngagementKindValid(t *testing.T) {
	assert.True(t, EngagementView.Valid())
	assert.True(t, EngagementLike.Valid())
	assert.True(t, EngagementFavorite.Valid())
	assert.False(t, EngagementKind("applaud").Valid())
	assert.False(t, EngagementKind("").Valid())
}
