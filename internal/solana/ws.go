package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeProgram subscribes to changes of accounts owned by a program.
	// The returned channel is closed when ctx is cancelled or the client closes.
	SubscribeProgram(ctx context.Context, filter ProgramFilter) (<-chan AccountNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// ProgramFilter defines a programSubscribe filter.
type ProgramFilter struct {
	ProgramID string
	// DataSize restricts notifications to accounts of this exact size (0 = any).
	DataSize uint64
	// Commitment defaults to "confirmed".
	Commitment string
}

// AccountNotification is one programNotification with its data already decoded.
type AccountNotification struct {
	Pubkey   string
	Slot     int64
	Owner    string
	Lamports uint64
	Data     []byte
}
