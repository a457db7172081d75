package bridge

import "embed"

// DefaultResource is the path of the bridge script inside the embedded assets.
const DefaultResource = "assets/product_bridge.py"

//go:embed assets/product_bridge.py
var embeddedAssets embed.FS
