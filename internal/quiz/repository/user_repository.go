package repository

import (
	stderrors "errors"

	"github.com/architect/mathquest/internal/common/database"
	"github.com/architect/mathquest/internal/common/errors"
	"gorm.io/gorm"
)

// GetUserByID fetches a user account, nil if missing
func GetUserByID(id uint) (*database.User, error) {
	var user database.User
	err := database.DB.First(&user, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal("failed to fetch user", err.Error())
	}
	return &user, nil
}
