package catalog

// Default returns the built-in catalog. maxPrices overrides the per-category price
// ceiling by key; missing keys keep the built-in value.
func Default(maxPrices map[string]float64) *Registry {
	categories := builtin()
	for i := range categories {
		if v, ok := maxPrices[categories[i].Key]; ok && v > 0 {
			categories[i].MaxPrice = v
		}
	}
	r, err := New(categories...)
	if err != nil {
		// builtin() is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

func builtin() []Category {
	return []Category{
		{
			Key:         "iphone",
			DisplayName: "iPhone",
			Glyph:       "📱",
			Keywords: []string{
				"iphone 15 pro max", "iphone 15 pro", "iphone 15",
				"iphone 14 pro max", "iphone 14", "iphone 13",
			},
			MaxPrice:           6000,
			AbsoluteFloorPrice: 1800,
		},
		{
			Key:         "applewatch",
			DisplayName: "Apple Watch",
			Glyph:       "⌚",
			Keywords: []string{
				"apple watch series 9", "apple watch ultra 2",
				"apple watch se", "apple watch series 8",
			},
			MaxPrice:           3000,
			AbsoluteFloorPrice: 700,
		},
		{
			Key:         "garmin",
			DisplayName: "Garmin",
			Glyph:       "🏃",
			Keywords: []string{
				"garmin forerunner 265", "garmin forerunner 255",
				"garmin fenix 7", "garmin epix", "garmin vivoactive 5",
			},
			MaxPrice:           2500,
			AbsoluteFloorPrice: 600,
		},
		{
			Key:         "perfume",
			DisplayName: "Perfume",
			Glyph:       "🌹",
			Keywords: []string{
				"dior sauvage 100ml", "chanel bleu 100ml",
				"hugo boss bottled", "paco rabanne 1 million",
				"armani acqua di gio", "burberry hero",
			},
			MaxPrice:           800,
			AbsoluteFloorPrice: 80,
		},
		{
			Key:         "maquiagem",
			DisplayName: "Maquiagem",
			Glyph:       "💄",
			Keywords: []string{
				"base mac studio fix", "kit maquiagem mac",
				"urban decay all nighter", "lancôme teint idole",
				"charlotte tilbury flawless",
			},
			MaxPrice:           500,
			AbsoluteFloorPrice: 50,
		},
		{
			Key:         "polo",
			DisplayName: "Polo Masculina",
			Glyph:       "👕",
			Keywords: []string{
				"camisa polo ralph lauren", "polo lacoste masculina",
				"polo reserva masculino", "polo tommy hilfiger",
			},
			MaxPrice:           300,
			AbsoluteFloorPrice: 40,
		},
		{
			Key:         "roupa",
			DisplayName: "Roupa Masculina",
			Glyph:       "🧥",
			Keywords: []string{
				"calça levis 511", "jaqueta nike masculina",
				"moletom adidas masculino", "calça jeans forum masculina",
				"jaqueta corta-vento masculina",
			},
			MaxPrice:           500,
			AbsoluteFloorPrice: 35,
		},
	}
}
