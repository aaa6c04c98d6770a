package password

import "golang.org/x/crypto/bcrypt"

// Cost is the bcrypt work factor for stored staff passwords.
const Cost = 12

func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, Cost)
}

// HashPasswordWithCost lets the seed command and tests trade strength for speed.
func HashPasswordWithCost(password string, cost int) (string, error) {
	hashPassword, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}

	return string(hashPassword), nil
}

func CheckPasswordHash(password, hashPassword string) bool {
	if hashPassword == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashPassword), []byte(password))
	return err == nil
}
