// Package reporting shapes raw marketplace counters into report values.
// Everything here is a pure function of its arguments.
package reporting

// SalesReport summarises marketplace-wide activity.
type SalesReport struct {
	TotalSales     uint64 `json:"total_sales"`   // units sold
	TotalRevenue   uint64 `json:"total_revenue"` // gross, fees included
	TotalListed    uint64 `json:"total_listed"`  // listings ever created
	ActiveListings uint64 `json:"active_listings"`
}

// SellerReport summarises one seller's activity.
type SellerReport struct {
	ItemsListed  uint64 `json:"items_listed"`
	ItemsSold    uint64 `json:"items_sold"`
	TotalRevenue uint64 `json:"total_revenue"` // net of platform fee
}

// BuildSalesReport assembles a SalesReport.
func BuildSalesReport(totalSales, totalRevenue, totalListed, activeListings uint64) SalesReport {
	return SalesReport{
		TotalSales:     totalSales,
		TotalRevenue:   totalRevenue,
		TotalListed:    totalListed,
		ActiveListings: activeListings,
	}
}

// BuildSellerReport assembles a SellerReport.
func BuildSellerReport(listed, sold, revenue uint64) SellerReport {
	return SellerReport{
		ItemsListed:  listed,
		ItemsSold:    sold,
		TotalRevenue: revenue,
	}
}

// AveragePrice returns totalRevenue/totalSales truncated, or 0 when nothing
// has been sold.
func AveragePrice(totalRevenue, totalSales uint64) uint64 {
	if totalSales == 0 {
		return 0
	}
	return totalRevenue / totalSales
}
