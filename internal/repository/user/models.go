package user

type User struct {
	Id           int64
	Username     string
	Email        string
	PasswordHash string
}

type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
}
