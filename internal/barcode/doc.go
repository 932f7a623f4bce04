// Package barcode reads QR codes out of uploaded images and renders QR
// codes back into images.
//
// Decoding is pure Go (github.com/makiuchi-d/gozxing), so the service has
// no native barcode library to install. PNG, JPEG, GIF, BMP, TIFF and WebP
// inputs are understood.
package barcode
