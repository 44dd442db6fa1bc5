package frame

// Link is a pair of packet rings sharing one transport.
type Link struct {
	TX    *TX
	RX    *RX
	Stats *Stats

	config Config
}

// NewLink creates a Link with empty rings.
func NewLink(cfg Config) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{}
	tx, err := newTX(cfg, stats)
	if err != nil {
		return nil, err
	}
	rx, err := newRX(cfg, stats)
	if err != nil {
		return nil, err
	}
	return &Link{TX: tx, RX: rx, Stats: stats, config: cfg}, nil
}

// Config returns the config the link is created with.
func (l *Link) Config() Config {
	return l.config
}

// Attach binds the transport. It must be called before the transport fires
// any event.
func (l *Link) Attach(t Transport) {
	if t == nil {
		t = nopTransport{}
	}
	l.TX.transport, l.RX.transport = t, t
}
