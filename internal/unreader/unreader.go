package unreader

// Unreader holds back the bytes that were read from the socket but belong to the next
// consumer, e.g. a pipelined request following the current one.
type Unreader struct {
	pending []byte
}

func (u *Unreader) PendingOr(or func() ([]byte, error)) (data []byte, err error) {
	if len(u.pending) > 0 {
		data, u.pending = u.pending, nil
		return data, nil
	}

	return or()
}

func (u *Unreader) Unread(b []byte) {
	u.pending = b
}

// Pending reports whether there are bytes held back.
func (u *Unreader) Pending() bool {
	return len(u.pending) > 0
}

func (u *Unreader) Reset() {
	u.pending = nil
}
