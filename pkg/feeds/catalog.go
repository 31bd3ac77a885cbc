package feeds

import "github.com/illmade-knight/rtview-feed/pkg/types"

// Catalog feed names, in resubscription order.
const (
	MarketFeed  = "market"
	WeatherFeed = "weather"
	SensorFeed  = "sensor"
)

// Names lists the catalog feeds in their fixed order.
var Names = []string{MarketFeed, WeatherFeed, SensorFeed}

// NewMarketFeed returns the market orders feed.
func NewMarketFeed(s Settings) Feed {
	return Feed{
		Name:         MarketFeed,
		Channel:      "pubnub-market-orders",
		CacheName:    "PubNubMarketData",
		SubscribeKey: "sub-c-4377ab04-f100-11e3-bffd-02ee2ddab7fe",
		Presence:     true,
		Transform:    TransformMarket,
		Schema: types.CacheSchema{
			IndexColumns:   []string{"symbol", "trade_type"},
			HistoryColumns: []string{"order_quantity", "bid_price"},
			Columns: []types.Column{
				{Name: "time_stamp", Type: types.ColumnDate},
				{Name: "symbol", Type: types.ColumnString},
				{Name: "trade_type", Type: types.ColumnString},
				{Name: "order_quantity", Type: types.ColumnInt},
				{Name: "bid_price", Type: types.ColumnDouble},
			},
		},
	}.withSettings(s)
}

// NewWeatherFeed returns the weather station feed.
func NewWeatherFeed(s Settings) Feed {
	return Feed{
		Name:         WeatherFeed,
		Channel:      "pubnub-weather",
		CacheName:    "PubNubWeatherData",
		SubscribeKey: "sub-c-b1cadece-f0fa-11e3-928e-02ee2ddab7fe",
		Transform:    TransformWeather,
		Schema: types.CacheSchema{
			IndexColumns: []string{"location", "weather_station"},
			HistoryColumns: []string{
				"weather", "ultraviolet_level", "temp_fahrenheit", "wind_direction",
				"elevation", "latitude", "longitude",
			},
			Columns: []types.Column{
				{Name: "location", Type: types.ColumnString},
				{Name: "weather_station", Type: types.ColumnString},
				{Name: "weather", Type: types.ColumnString},
				{Name: "ultraviolet_level", Type: types.ColumnDouble},
				{Name: "temp_fahrenheit", Type: types.ColumnDouble},
				{Name: "wind_direction", Type: types.ColumnDouble},
				{Name: "elevation", Type: types.ColumnString},
				{Name: "latitude", Type: types.ColumnString},
				{Name: "longitude", Type: types.ColumnString},
			},
		},
	}.withSettings(s)
}

// NewSensorFeed returns the sensor network feed. The feed's transform owns
// a fresh SequenceCounter.
func NewSensorFeed(s Settings) Feed {
	return Feed{
		Name:         SensorFeed,
		Channel:      "pubnub-sensor-network",
		CacheName:    "PubNubSensorData",
		SubscribeKey: "sub-c-5f1b7c8e-fbee-11e3-aa40-02ee2ddab7fe",
		Transform:    NewSensorTransformer(nil).Transform,
		Schema: types.CacheSchema{
			IndexColumns:   []string{"sensor_uuid"},
			HistoryColumns: []string{"ambient_temperature", "humidity", "photosensor", "radiation_level"},
			Columns: []types.Column{
				{Name: "time_stamp", Type: types.ColumnDate},
				{Name: "sensor_uuid", Type: types.ColumnString},
				{Name: "ambient_temperature", Type: types.ColumnDouble},
				{Name: "humidity", Type: types.ColumnDouble},
				{Name: "photosensor", Type: types.ColumnDouble},
				{Name: "radiation_level", Type: types.ColumnDouble},
			},
		},
	}.withSettings(s)
}

// NewCatalog builds the three feeds in order market, weather, sensor, applying
// any overrides keyed by feed name.
func NewCatalog(overrides map[string]Settings) []Feed {
	return []Feed{
		NewMarketFeed(overrides[MarketFeed]),
		NewWeatherFeed(overrides[WeatherFeed]),
		NewSensorFeed(overrides[SensorFeed]),
	}
}
