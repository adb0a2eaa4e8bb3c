package user

import "context"

// Directory writes join the Unit of Work carried by ctx, so owner creation and
// token issuance commit together.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Insert(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
}
