package eventtype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/eventtype"
)

type itemAdded struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

func (itemAdded) EventType() string { return "ItemAdded" }

type itemAddedV2 struct {
	SKU string `json:"sku"`
}

func (itemAddedV2) EventType() string { return "ItemAdded" }

type cart struct {
	Items map[string]int `json:"items"`
}

func (cart) AggregateType() string { return "Cart" }

type pointerEvent struct {
	Note string `json:"note"`
}

func (*pointerEvent) EventType() string { return "PointerEvent" }

func TestRegistry_EventRoundTrip(t *testing.T) {
	r := eventtype.NewRegistry()
	require.NoError(t, eventtype.RegisterEvent[itemAdded](r))

	name, data, err := r.EncodeEvent(itemAdded{SKU: "a-1", Qty: 2})
	require.NoError(t, err)
	assert.Equal(t, "ItemAdded", name)
	assert.JSONEq(t, `{"sku":"a-1","qty":2}`, string(data))

	decoded, err := r.DecodeEvent(name, data)
	require.NoError(t, err)
	assert.Equal(t, itemAdded{SKU: "a-1", Qty: 2}, decoded)
	assert.Equal(t, []string{"ItemAdded"}, r.EventTypes())
}

func TestRegistry_PointerPayloads(t *testing.T) {
	r := eventtype.NewRegistry()
	eventtype.MustRegisterEvent[*pointerEvent](r)

	name, data, err := r.EncodeEvent(&pointerEvent{Note: "hi"})
	require.NoError(t, err)

	decoded, err := r.DecodeEvent(name, data)
	require.NoError(t, err)
	assert.Equal(t, &pointerEvent{Note: "hi"}, decoded)
}

func TestRegistry_AggregateRoundTrip(t *testing.T) {
	r := eventtype.NewRegistry()
	eventtype.MustRegisterAggregate[cart](r)

	name, data, err := r.EncodeAggregate(cart{Items: map[string]int{"a": 1}})
	require.NoError(t, err)

	decoded, err := r.DecodeAggregate(name, data)
	require.NoError(t, err)
	assert.Equal(t, cart{Items: map[string]int{"a": 1}}, decoded)
}

func TestRegistry_EmptyPayloadIsBuiltIn(t *testing.T) {
	r := eventtype.NewRegistry()

	name, data, err := r.EncodeAggregate(nil)
	require.NoError(t, err)
	assert.Equal(t, es.EmptyPayloadType, name)

	decoded, err := r.DecodeAggregate(name, data)
	require.NoError(t, err)
	assert.Equal(t, es.EmptyPayload{}, decoded)
}

func TestRegistry_Unknown(t *testing.T) {
	r := eventtype.NewRegistry()

	_, _, err := r.EncodeEvent(itemAdded{})
	assert.ErrorIs(t, err, eventtype.ErrUnknownType)

	_, err = r.DecodeEvent("ItemAdded", []byte(`{}`))
	assert.ErrorIs(t, err, eventtype.ErrUnknownType)

	_, err = r.DecodeAggregate("Cart", []byte(`{}`))
	assert.ErrorIs(t, err, eventtype.ErrUnknownType)

	assert.False(t, r.HasEvent(nil))
}

func TestRegistry_Duplicates(t *testing.T) {
	r := eventtype.NewRegistry()
	require.NoError(t, eventtype.RegisterEvent[itemAdded](r))

	// same type twice is idempotent
	require.NoError(t, eventtype.RegisterEvent[itemAdded](r))

	err := eventtype.RegisterEvent[itemAddedV2](r)
	assert.ErrorIs(t, err, eventtype.ErrDuplicateType)

	// a same-named but different type is not considered registered
	assert.False(t, r.HasEvent(itemAddedV2{}))
	assert.Panics(t, func() { eventtype.MustRegisterEvent[itemAddedV2](r) })
}

func TestRegistry_DecodeError(t *testing.T) {
	r := eventtype.NewRegistry()
	eventtype.MustRegisterEvent[itemAdded](r)

	_, err := r.DecodeEvent("ItemAdded", []byte(`{"qty":"many"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, eventtype.ErrUnknownType)
}
