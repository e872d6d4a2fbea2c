// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room handlers. These give clients
// more specific reasons for closure than the standard set.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Session token was missing, invalid, or expired.
	InvalidRoomIDError    = 3002 // Target room in the WS URL does not exist or is malformed.
	NotARoomMemberError   = 3003 // Token is valid but the user is not a member of the room.
	ReplacedByNewerError  = 3004 // A newer connection for the same user took over.
)
