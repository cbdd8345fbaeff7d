package amqp

import (
	"fmt"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/transport"
)

// publishing maps an outbound message and its payload onto AMQP properties
func publishing(msg *contracts.Message, payload []byte) amqp091.Publishing {
	p := amqp091.Publishing{
		ContentType:   msg.GetString(contracts.PropContentType),
		MessageId:     msg.ID,
		CorrelationId: msg.CorrelationID(),
		ReplyTo:       msg.GetString(contracts.PropReplyTo),
		Body:          payload,
	}
	if p.ContentType == "" {
		p.ContentType = "application/json"
	}
	if len(msg.Headers) > 0 {
		p.Headers = make(amqp091.Table, len(msg.Headers))
		for name, value := range msg.Headers {
			p.Headers[name] = value
		}
	}
	return p
}

// inbound converts a delivery into the message handed to an observer
func inbound(d amqp091.Delivery) *contracts.Message {
	var headers map[string]string
	if len(d.Headers) > 0 {
		headers = make(map[string]string, len(d.Headers))
		for name, value := range d.Headers {
			switch v := value.(type) {
			case string:
				headers[name] = v
			case []byte:
				headers[name] = string(v)
			default:
				headers[name] = fmt.Sprint(v)
			}
		}
	}
	msg := transport.NewInbound(d.Body, d.CorrelationId, d.ReplyTo, headers)
	if d.MessageId != "" {
		msg.ID = d.MessageId
	}
	return msg
}
