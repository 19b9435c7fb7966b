package driver

import "context"

// run is the driver's single goroutine: one inbound message or ticker firing
// is processed to completion before the next is dequeued. Termination is
// checked once per iteration rather than mid-handler, so no handler ever
// suspends partway through a state transition.
func (d *Driver) run() {
	defer d.terminate()

	for {
		select {
		case <-d.pollTicker.C:
			d.handle(pollTick{})
		case msg, ok := <-d.mailbox:
			if !ok {
				return
			}
			d.handle(msg)
		}

		if d.terminated {
			return
		}
	}
}

func (d *Driver) handle(msg driverMessage) {
	switch m := msg.(type) {
	case Assign:
		if d.rejectIfStopping("Assign") {
			return
		}
		if err := d.handleAssign(m); err != nil {
			d.fail(err)
		}

	case AssignWithOffset:
		if d.rejectIfStopping("AssignWithOffset") {
			return
		}
		if err := d.handleAssignWithOffset(m); err != nil {
			d.fail(err)
		}

	case Subscribe:
		if d.rejectIfStopping("Subscribe") {
			return
		}
		if err := d.handleSubscribe(m); err != nil {
			d.fail(err)
		}

	case SubscribePattern:
		if d.rejectIfStopping("SubscribePattern") {
			return
		}
		if err := d.handleSubscribePattern(m); err != nil {
			d.fail(err)
		}

	case RequestMessages:
		if d.stopInProgress {
			m.Reply <- RequestResult{Err: ErrStopping}
			return
		}
		isNew := !d.registry.isWatched(m.Requester)
		d.registry.add(m.Requester, m.Reply, m.Partitions)
		if isNew && m.Context != nil {
			d.watchRequester(m.Requester, m.Context)
		}
		if err := d.poll(); err != nil {
			d.fail(err)
		}

	case Commit:
		if d.stopInProgress {
			m.Reply <- CommitResult{Err: ErrStopping}
			return
		}
		d.handleCommit(m)
		if err := d.poll(); err != nil {
			d.fail(err)
		}

	case pollTick:
		if err := d.poll(); err != nil {
			d.fail(err)
		}

	case Stop:
		if d.commitsInProgress == 0 {
			d.terminated = true
			return
		}
		d.stopInProgress = true
		d.logger.Info("driver entering stopping state", "commitsInProgress", d.commitsInProgress)

	case requesterGone:
		d.registry.purge(m.id)
	}
}

// rejectIfStopping logs and reports whether msg should be dropped because
// the driver is Stopping; it exists only for the no-reply messages
// (Assign/Subscribe/...) that spec.md's mailbox table drops with a warning
// rather than replying with StoppingError.
func (d *Driver) rejectIfStopping(op string) bool {
	if !d.stopInProgress {
		return false
	}
	d.logger.Warn("dropping message while stopping", "message", op)
	return true
}

// fail logs a fatal driver error and marks the driver for termination. Only
// ClientError and InvariantViolation reach here; CommitError is routed to
// its caller instead.
func (d *Driver) fail(err error) {
	d.logger.Error("driver terminating on fatal error", "error", err)
	d.terminated = true
}

// watchRequester spawns a one-off goroutine that purges id from the
// registry once its context is done, so a dead requester's entries don't
// linger forever waiting for records nobody will read. The wait for
// ctx.Done() races against d.done from the start so a requester that never
// cancels its context (context.Background(), the common case for a caller
// with no demand-level cancellation) doesn't leak this goroutine past the
// driver's own termination.
func (d *Driver) watchRequester(id RequesterID, ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			select {
			case d.mailbox <- requesterGone{id: id}:
			case <-d.done:
			}
		case <-d.done:
		}
	}()
}

// terminate runs exactly once, on every path out of run, including a panic
// unwinding through it.
func (d *Driver) terminate() {
	d.pollTicker.Stop()
	d.client.Close()
	close(d.done)
}
