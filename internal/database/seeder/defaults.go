package seeder

// Defaults seeds the sample catalog and gives demoUserID a ranked career profile.
func Defaults(demoUserID int64) []Seeder {
	return []Seeder{
		JobListingsSeeder{},
		CareerRankingsSeeder{UserID: demoUserID},
	}
}
