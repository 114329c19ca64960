package wayland

import (
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// activationToken is xdg_activation_token_v1
type activationToken struct {
	client.BaseProxy
	request uint64
}

func (t *activationToken) event(c *Client, opcode uint16, d *args) error {
	if opcode != 0 {
		return c.unknownEvent(ifaceActivation+" token", t.ID(), opcode)
	}
	token := d.String()
	if err := d.Err(); err != nil {
		return err
	}
	c.destroy(t.ID(), 4)
	c.handler.ActivationToken(t.request, token)
	return nil
}

// RequestActivationToken asks for a launch token for appID. The token is
// delivered to Handler.ActivationToken under the returned request id.
func (c *Client) RequestActivationToken(appID string) (uint64, error) {
	if c.activation == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, ifaceActivation)
	}

	c.tokenSeq++
	t := &activationToken{request: c.tokenSeq}
	id := c.register(t)

	reqs := []*request{newRequest(c.activation, 1).NewID(id)}
	if appID != "" {
		reqs = append(reqs, newRequest(id, 1).String(appID))
	}
	if seat := c.firstSeat(); seat != 0 {
		reqs = append(reqs, newRequest(id, 0).Uint(0).Object(seat))
	}
	reqs = append(reqs, newRequest(id, 3))

	for _, r := range reqs {
		if err := c.send(r); err != nil {
			return 0, fmt.Errorf("failed to request activation token: %w", err)
		}
	}
	return t.request, nil
}
