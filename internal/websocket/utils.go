// internal/websocket/utils.go
package websocket

import (
	"fmt"

	wstypes "edumarket-service/internal/domain/websocket"
)

// DecodeRequest unmarshals msg's payload into target, answering the client
// with an invalid_request error when it does not fit
func DecodeRequest(client *Client, msg *wstypes.WSMessage, target interface{}) error {
	if err := msg.DecodeData(target); err != nil {
		client.SendError("invalid_request", fmt.Sprintf("Invalid %s request", msg.Type), err.Error())
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
