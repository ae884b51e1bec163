package orders

const cartType = "Cart"

type OrderPlaced struct {
	ID string `json:"id"`
}

func (OrderPlaced) EventType() string { return "OrderPlaced" }

type OrderShipped struct{}

func (*OrderShipped) EventType() string { return "OrderShipped" }

type Cart struct {
	Items []string `json:"items"`
}

func (Cart) AggregateType() string { return cartType }

type note struct{}

func (note) EventType() string { return "Note" }

func (OrderPlaced) String() string { return "order" }
