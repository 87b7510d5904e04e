package domain

// Member is the presence entry of one user in a room.
// No transport or lifecycle logic here.
type Member struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

func NewMember(user User) Member {
	return Member{ID: user.ID, Username: user.Username}
}
