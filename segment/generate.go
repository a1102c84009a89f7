package segment

//go:generate mockgen -source oracle.go -destination ./mocks/oracle.go
