package domain

// User is the minimal identity record SentryCore needs: enough to
// address a rendered notification. Account management itself is out of
// scope; this table is treated as owned by the surrounding product.
type User struct {
	ID    string `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
}
