package hospitalapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID accepts both JSON strings and numbers; the hospital API is not
// consistent about which it sends.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("hospitalapi: id must be string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type Skill struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type Doctor struct {
	ID             ID      `json:"id"`
	Name           string  `json:"name"`
	Specialty      string  `json:"specialty,omitempty"`
	SkillID        ID      `json:"skill_id,omitempty"`
	Qualification  string  `json:"qualification,omitempty"`
	ExperienceYrs  int     `json:"experience,omitempty"`
	ConsultFee     float64 `json:"fee,omitempty"`
	ProfilePicture string  `json:"profile_picture,omitempty"`
}

type User struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"password_confirmation"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Profile struct {
	ID          ID     `json:"id,omitempty"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Gender      string `json:"gender,omitempty"`
	DateOfBirth string `json:"dob,omitempty"`
	Address     string `json:"address,omitempty"`
	BloodGroup  string `json:"blood_group,omitempty"`
}

type Relative struct {
	ID           ID     `json:"id,omitempty"`
	Name         string `json:"name"`
	Relationship string `json:"relation"`
	Age          int    `json:"age,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

type Organization struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Logo    string `json:"logo,omitempty"`
}

// AppointmentRequest is the body of the booking POST.
type AppointmentRequest struct {
	DoctorID            string   `json:"doctor_id"`
	ForUserType         string   `json:"for_user_type"`
	RelativeID          string   `json:"relative_id,omitempty"`
	ConsultationType    []string `json:"consultation_type"`
	ConsultationSubtype string   `json:"consultation_subtype"`
	Date                string   `json:"date"`
	Slot                string   `json:"slot"`
	Issue               string   `json:"issue"`
	Description         string   `json:"description,omitempty"`
}

type Appointment struct {
	ID                  ID     `json:"id"`
	DoctorID            ID     `json:"doctor_id,omitempty"`
	DoctorName          string `json:"doctor_name,omitempty"`
	Date                string `json:"date"`
	Slot                string `json:"slot"`
	Status              string `json:"status,omitempty"`
	ConsultationSubtype string `json:"consultation_subtype,omitempty"`
}

type TestCheckup struct {
	ID          ID      `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price,omitempty"`
}

type TestBookingRequest struct {
	TestID      string `json:"test_id"`
	Date        string `json:"date"`
	ForUserType string `json:"for_user_type,omitempty"`
	RelativeID  string `json:"relative_id,omitempty"`
}

type TestBooking struct {
	ID     ID     `json:"id"`
	TestID ID     `json:"test_id"`
	Date   string `json:"date"`
	Status string `json:"status,omitempty"`
}
