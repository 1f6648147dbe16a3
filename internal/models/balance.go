package models

// Balance is the account balance for one mode. The engine only moves it
// through trade open (debit) and settle (credit); nothing else writes it.
type Balance struct {
	Mode   Mode    `json:"mode" gorm:"primaryKey"`
	Amount float64 `json:"amount"`
}
