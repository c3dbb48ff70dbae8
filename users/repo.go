package users

type UserRepo interface {
	Create(user *User) error
	GetByEmail(email string) (*User, error)
	GetByID(id int64) (*User, error)
	GetByGoogleSubject(subject string) (*User, error)
	LinkGoogleSubject(email, subject string) error
}
