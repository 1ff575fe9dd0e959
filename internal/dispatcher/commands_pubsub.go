package dispatcher

import "redikv/internal/resp"

func (d *Dispatcher) cmdSubscribe(s *Session, args [][]byte) error {
	if len(args) < 2 {
		return wrongNumArgs("subscribe")
	}
	for _, ch := range args[1:] {
		channel := string(ch)
		d.Hub.Subscribe(channel, s)
		s.addSub(channel)
		if err := s.lockedEncoder(func(e *resp.Encoder) error {
			if err := e.ArrayHeader(3); err != nil {
				return err
			}
			if err := e.BulkStringFrom("subscribe"); err != nil {
				return err
			}
			if err := e.BulkStringFrom(channel); err != nil {
				return err
			}
			return e.Integer(int64(s.subCount()))
		}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) cmdUnsubscribe(s *Session, args [][]byte) error {
	channels := args[1:]
	if len(channels) == 0 {
		channels = make([][]byte, 0, len(s.SubscribedChannels()))
		for _, c := range s.SubscribedChannels() {
			channels = append(channels, []byte(c))
		}
	}
	if len(channels) == 0 {
		return s.lockedEncoder(func(e *resp.Encoder) error {
			if err := e.ArrayHeader(3); err != nil {
				return err
			}
			if err := e.BulkStringFrom("unsubscribe"); err != nil {
				return err
			}
			if err := e.NullBulk(); err != nil {
				return err
			}
			return e.Integer(0)
		})
	}
	for _, ch := range channels {
		channel := string(ch)
		d.Hub.Unsubscribe(channel, s)
		s.removeSub(channel)
		if err := s.lockedEncoder(func(e *resp.Encoder) error {
			if err := e.ArrayHeader(3); err != nil {
				return err
			}
			if err := e.BulkStringFrom("unsubscribe"); err != nil {
				return err
			}
			if err := e.BulkStringFrom(channel); err != nil {
				return err
			}
			return e.Integer(int64(s.subCount()))
		}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) cmdPublish(s *Session, args [][]byte) error {
	if len(args) != 3 {
		return wrongNumArgs("publish")
	}
	n := d.Hub.Publish(string(args[1]), args[2])
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}
