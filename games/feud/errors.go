package feud

// GameError is a custom error type for game-related errors
type GameError string

// Error implements the error interface
func (e GameError) Error() string {
	return string(e)
}

const (
	ErrNilConfig    GameError = "config cannot be nil"
	ErrNilStore     GameError = "store cannot be nil"
	ErrNilBus       GameError = "bus cannot be nil"
	ErrNilKV        GameError = "key-value store cannot be nil"
	ErrEmptyPayload GameError = "payload is empty"
	ErrMalformed    GameError = "payload is not valid JSON"
	ErrInvalidState GameError = "game state is invalid"
	ErrInvalidPrefs GameError = "preferences are invalid"
)
