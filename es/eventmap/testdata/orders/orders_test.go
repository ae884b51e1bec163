package orders

type Ignored struct{}

func (Ignored) EventType() string { return "Ignored" }
