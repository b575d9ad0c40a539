package models

import "time"

// Client is the customer owning one or more vehicles.
type Client struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FirstName string `gorm:"size:120;not null" json:"first_name"`
	LastName  string `gorm:"size:120;not null" json:"last_name"`
	Email     string `gorm:"size:255" json:"email,omitempty"`
	Phone     string `gorm:"size:50" json:"phone,omitempty"`
	TaxID     string `gorm:"size:30;index" json:"tax_id,omitempty"`
}

// FullName joins first and last name.
func (c *Client) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Vehicle is identified by its plate.
type Vehicle struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Plate string `gorm:"size:20;uniqueIndex;not null" json:"plate"`
	Brand string `gorm:"size:80" json:"brand,omitempty"`
	Model string `gorm:"size:80" json:"model,omitempty"`
	Year  int    `json:"year,omitempty"`
	Color string `gorm:"size:40" json:"color,omitempty"`
}

// ClientVehicleLink associates a client with a vehicle. Orders reference the
// link, never the client or vehicle directly. (client_id, vehicle_id) is unique.
type ClientVehicleLink struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ClientID  uint     `gorm:"not null;uniqueIndex:idx_client_vehicle,priority:1" json:"client_id"`
	Client    *Client  `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	VehicleID uint     `gorm:"not null;uniqueIndex:idx_client_vehicle,priority:2;index" json:"vehicle_id"`
	Vehicle   *Vehicle `gorm:"foreignKey:VehicleID" json:"vehicle,omitempty"`
}
