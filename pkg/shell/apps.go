package shell

// App is an installed application.
type App struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// DefaultApps is the stock app registry, in launcher order.
var DefaultApps = []App{
	// Core system
	{ID: "my_computer", Name: "This PC", Icon: "computer", Color: "#007AFF"},
	{ID: "settings_app", Name: "Settings", Icon: "settings", Color: "#8E8E93"},
	{ID: "app_store", Name: "App Store", Icon: "shopping_bag", Color: "#007AFF"},
	{ID: "file_manager", Name: "Files", Icon: "folder", Color: "#FFCC00"},
	{ID: "terminal", Name: "Terminal", Icon: "terminal", Color: "#1C1C1E"},
	{ID: "system_monitor", Name: "Activity", Icon: "monitor_heart", Color: "#FF3B30"},
	{ID: "control_center", Name: "Control", Icon: "toggle_on", Color: "#007AFF"},

	// Communication
	{ID: "mail", Name: "Mail", Icon: "mail", Color: "#007AFF"},
	{ID: "messages", Name: "Messages", Icon: "chat_bubble", Color: "#34C759"},
	{ID: "contacts", Name: "Contacts", Icon: "contacts", Color: "#98989D"},

	// Media
	{ID: "photos", Name: "Photos", Icon: "photo_library", Color: "linear-gradient(135deg, #FF3B30, #FF9500, #AF52DE)"},
	{ID: "paint_app", Name: "Paint", Icon: "palette", Color: "#FF9500"},
	{ID: "camera", Name: "Camera", Icon: "photo_camera", Color: "#999999"},
	{ID: "media_player", Name: "Music", Icon: "play_circle", Color: "#FA2D48"},
	{ID: "podcasts_app", Name: "Podcasts", Icon: "podcasts", Color: "#AF52DE"},
	{ID: "voice_memos", Name: "Voice Memos", Icon: "mic", Color: "#FF3B30"},
	{ID: "books_app", Name: "Books", Icon: "menu_book", Color: "#FF9500"},

	// Productivity
	{ID: "web_browser_app", Name: "Browser", Icon: "public", Color: "#007AFF"},
	{ID: "notepad_app", Name: "Notes", Icon: "edit_note", Color: "#FFCC00"},
	{ID: "calendar", Name: "Calendar", Icon: "calendar_month", Color: "#FF3B30"},
	{ID: "clock", Name: "Clock", Icon: "schedule", Color: "#000000"},
	{ID: "weather", Name: "Weather", Icon: "wb_sunny", Color: "#30B0C7"},
	{ID: "travel_app", Name: "Maps", Icon: "map", Color: "#34C759"},
	{ID: "calculator_app", Name: "Calculator", Icon: "calculate", Color: "#FF9500"},
	{ID: "screen_recorder", Name: "Recorder", Icon: "radio_button_checked", Color: "#FF3B30"},
	{ID: "screenshot_tool", Name: "Snipping", Icon: "screenshot_monitor", Color: "#30B0C7"},
	{ID: "themes_store", Name: "Themes", Icon: "brush", Color: "#AF52DE"},
	{ID: "news_app", Name: "News", Icon: "newspaper", Color: "#FA2D48"},
	{ID: "stocks_app", Name: "Stocks", Icon: "show_chart", Color: "#1C1C1E"},
	{ID: "health_app", Name: "Health", Icon: "health_and_safety", Color: "#FF3B30"},
	{ID: "home_app", Name: "Home", Icon: "home", Color: "#FF9500"},
	{ID: "wallet_app", Name: "Wallet", Icon: "account_balance_wallet", Color: "#1C1C1E"},

	// Entertainment
	{ID: "gaming_app", Name: "Games", Icon: "sports_esports", Color: "#5856D6"},
	{ID: "shopping_app", Name: "Shop", Icon: "shopping_bag", Color: "#FF2D55"},
	{ID: "trash_bin", Name: "Trash", Icon: "delete", Color: "#8E8E93"},

	// Games
	{ID: "snake_game", Name: "Snake", Icon: "all_inclusive", Color: "#34C759"},
	{ID: "plumber_game", Name: "Plumber", Icon: "emoji_events", Color: "#FF3B30"},
	{ID: "cyber_race", Name: "Racer", Icon: "sports_score", Color: "#AF52DE"},
}

// DefaultWallpapers is the wallpaper rotation. Index 0 is the live wallpaper.
var DefaultWallpapers = []string{
	"https://images.unsplash.com/photo-1618005182384-a83a8bd57fbe?q=80&w=2564&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1506744038136-46273834b3fb?q=80&w=3270&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1477346611705-65d1883cee1e?q=80&w=3270&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1451187580459-43490279c0fa?q=80&w=3272&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1493246507139-91e8fad9978e?q=80&w=2940&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1550684848-fac1c5b4e853?q=80&w=2070&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1516550893923-42d28e5677af?q=80&w=3272&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1526374965328-7f61d4dc18c5?q=80&w=3270&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1605810230434-7631ac76ec81?q=80&w=3270&auto=format&fit=crop",
	"https://images.unsplash.com/photo-1486406146926-c627a92ad1ab?q=80&w=3270&auto=format&fit=crop",
	"https://upload.wikimedia.org/wikipedia/commons/b/b9/Bsodwindows10.png",
	"https://images.unsplash.com/photo-1592669894672-88775432320b?q=80&w=2564&auto=format&fit=crop",
}
