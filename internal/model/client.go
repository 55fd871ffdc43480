package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is the person buying a plan (the contract holder)
type Client struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	FirstName      string         `gorm:"type:varchar(255);not null" json:"first_name"`
	LastName       string         `gorm:"type:varchar(255);not null" json:"last_name"`
	DocumentNumber string         `gorm:"type:varchar(50);index" json:"document_number"`
	Email          string         `gorm:"type:varchar(255)" json:"email"`
	Phone          string         `gorm:"type:varchar(50)" json:"phone"`
	BirthDate      *time.Time     `gorm:"type:date" json:"birth_date"`
	Address        string         `gorm:"type:text" json:"address"`
	CreatedBy      *uuid.UUID     `gorm:"type:uuid" json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// FullName joins first and last name
func (c Client) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
