package driver

import "github.com/nagyist/reactive-kafka/kafka"

func (d *Driver) handleAssign(msg Assign) error {
	if err := d.client.Assign(msg.Partitions); err != nil {
		return &ClientError{Op: "assign", Cause: err}
	}
	return nil
}

func (d *Driver) handleAssignWithOffset(msg AssignWithOffset) error {
	if err := d.client.AssignWithOffset(msg.Offsets); err != nil {
		return &ClientError{Op: "assign-with-offset", Cause: err}
	}
	return nil
}

func (d *Driver) handleSubscribe(msg Subscribe) error {
	listener := d.autoPauseListener(msg.Listener)
	if err := d.client.Subscribe(msg.Topics, listener); err != nil {
		return &ClientError{Op: "subscribe", Cause: err}
	}
	return nil
}

func (d *Driver) handleSubscribePattern(msg SubscribePattern) error {
	listener := d.autoPauseListener(msg.Listener)
	if err := d.client.SubscribePattern(msg.Pattern, listener); err != nil {
		return &ClientError{Op: "subscribe-pattern", Cause: err}
	}
	return nil
}

// autoPauseListener wraps a caller's rebalance listener so newly assigned
// partitions are paused on the client before the caller's own OnAssigned
// runs. A freshly assigned partition has no outstanding RequestMessages yet,
// so it must not be fetched until a downstream actually demands it — the
// next poll cycle resumes only the partitions present in the registry.
// Revocation is forwarded unchanged.
func (d *Driver) autoPauseListener(user kafka.RebalanceListener) kafka.RebalanceListener {
	return kafka.RebalanceListenerFuncs{
		OnAssignedFunc: func(partitions []kafka.TopicPartition) {
			d.client.Pause(partitions...)
			if user != nil {
				user.OnAssigned(partitions)
			}
		},
		OnRevokedFunc: func(partitions []kafka.TopicPartition) {
			if user != nil {
				user.OnRevoked(partitions)
			}
		},
	}
}
