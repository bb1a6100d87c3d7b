package domain

import "github.com/cuongbtq/jobflow/internal/events"

// Acknowledger settles a delivery. amqp.Delivery satisfies it.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// EventMessage is a decoded step event handed from the dispatcher to the pool
type EventMessage struct {
	Event       events.StepEvent
	DeliveryTag uint64
	Redelivered bool
	Delivery    Acknowledger
}
