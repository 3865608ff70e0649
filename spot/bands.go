package spot

// Bands is the fixed set of bands the pipeline subscribes to and aggregates,
// 160m through 2m. Spots on other bands still parse; this set only drives feed
// subscriptions and display ordering.
var Bands = []string{
	"160m", "80m", "60m", "40m", "30m", "20m", "17m", "15m", "12m", "10m", "6m", "2m",
}

// IsSupportedBand reports whether band is in the fixed supported set.
func IsSupportedBand(band string) bool {
	for _, b := range Bands {
		if b == band {
			return true
		}
	}
	return false
}
