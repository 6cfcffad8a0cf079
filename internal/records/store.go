package records

import "context"

// Store persists case records. List and Export take the caller's program
// set and must filter inside the query itself; a nil set means the caller
// holds instance-wide scope. Find is unrestricted by contract because the
// service decides afterwards whether the caller may learn the record
// exists.
type Store interface {
	Create(ctx context.Context, c *Client) error
	Find(ctx context.Context, id string) (*Client, error)
	List(ctx context.Context, programs []string, includeInactive bool) ([]*Client, error)
	Update(ctx context.Context, c *Client) error
	SetActive(ctx context.Context, id string, active bool) error
}
