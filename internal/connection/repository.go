package connection

import "context"

// Repository persists connections. Implementations must serialize
// read-modify-write sequences per connection with repeatable-read
// transactions; this interface only names the operations, not the
// isolation mechanics.
type Repository interface {
	Get(ctx context.Context, id string) (*Connection, error)
	List(ctx context.Context) ([]*Connection, error)
	Save(ctx context.Context, c *Connection) error
	Delete(ctx context.Context, id string) error
}
